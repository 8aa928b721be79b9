package cache

import "github.com/pario-ai/cachegate/pkg/models"

// Request identifies one cacheable generation.
type Request struct {
	Service models.Service
	Model   string
	Prompt  string
}

// Key returns the cache key for r.
func (r Request) Key() string {
	return Key(r.Service, r.Model, r.Prompt)
}

// Key builds a cache key. Prompts are used verbatim, so prompts that
// differ only in case or whitespace get different keys.
//
//	ollama         ollama:<model>:<prompt>
//	google-gemini  google-gemini::<prompt>
func Key(service models.Service, model, prompt string) string {
	if service == models.ServiceGoogleGemini {
		model = ""
	}
	return string(service) + ":" + model + ":" + prompt
}
