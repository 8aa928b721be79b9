package models

// ProxyRequest is the body of POST /api/proxy.
type ProxyRequest struct {
	Service Service `json:"service"`
	Model   string  `json:"model,omitempty"`
	Prompt  string  `json:"prompt"`
	KeyID   string  `json:"keyId"`
}

// ProxyResponse is the success body of POST /api/proxy.
type ProxyResponse struct {
	Content        string `json:"content"`
	IsCached       bool   `json:"isCached"`
	ShouldCache    *bool  `json:"shouldCache,omitempty"`
	DecisionReason string `json:"decisionReason,omitempty"`
}
