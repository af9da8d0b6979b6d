package plugins

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
)

func init() {
	pluginapi.Register("trusted_documents", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg TrustedDocumentsConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewTrustedDocuments(cfg), nil
	})
}

// TrustedDocumentsConfig configures persisted-document lookup.
type TrustedDocumentsConfig struct {
	// Store maps document ids to operation text.
	Store map[string]string `json:"store"`
	// AllowUntrusted lets requests without a known documentId continue to
	// normal extraction instead of being rejected.
	AllowUntrusted bool `json:"allow_untrusted"`
}

// TrustedDocuments resolves {"documentId": ...} POST bodies (and
// ?documentId= GET parameters) against a store of persisted operations.
type TrustedDocuments struct {
	cfg TrustedDocumentsConfig
}

func NewTrustedDocuments(cfg TrustedDocumentsConfig) *TrustedDocuments {
	return &TrustedDocuments{cfg: cfg}
}

func (p *TrustedDocuments) Name() string { return "trusted_documents" }

// trustedDocumentRequest is the POST body form carrying a document id.
type trustedDocumentRequest struct {
	DocumentID    string         `json:"documentId"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
}

func (p *TrustedDocuments) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	docReq := p.extractDocumentRequest(rctx.Request)
	if docReq == nil {
		return nil
	}

	query, ok := p.cfg.Store[docReq.DocumentID]
	if !ok {
		if p.cfg.AllowUntrusted {
			return nil
		}
		resp := gqlmsg.NewErrorResponse("trusted document not found").ToHTTPResponse(http.StatusNotFound)
		rctx.ShortCircuit(resp)
		return nil
	}

	parsed, err := gqlmsg.Parse(&gqlmsg.Request{
		Query:         query,
		OperationName: docReq.OperationName,
		Variables:     docReq.Variables,
		Extensions:    docReq.Extensions,
	})
	if err != nil {
		accept := rctx.Request.Headers.Get("accept")
		rctx.ShortCircuit(gqlmsg.ErrorHTTPResponse(accept, err.Error(), http.StatusBadRequest))
		return nil
	}

	rctx.GraphQL = parsed
	return nil
}

func (p *TrustedDocuments) extractDocumentRequest(req *httpmsg.Request) *trustedDocumentRequest {
	switch req.Method {
	case http.MethodPost:
		if len(req.Body) == 0 {
			return nil
		}
		var docReq trustedDocumentRequest
		if err := json.Unmarshal(req.Body, &docReq); err != nil || docReq.DocumentID == "" {
			return nil
		}
		return &docReq

	case http.MethodGet:
		values, err := url.ParseQuery(req.QueryString)
		if err != nil {
			return nil
		}
		id := values.Get("documentId")
		if id == "" {
			return nil
		}
		docReq := &trustedDocumentRequest{
			DocumentID:    id,
			OperationName: values.Get("operationName"),
		}
		if raw := values.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &docReq.Variables); err != nil {
				return nil
			}
		}
		return docReq
	}

	return nil
}
