// Package llm provides abstractions for LLM provider integration.
//
// Example usage:
//
//	provider, err := openai.NewProvider(backend.APIKey,
//	    openai.WithBaseURL(backend.BaseURL),
//	    openai.WithModel(backend.Model))
//	if err != nil {
//	    return err
//	}
//
//	stream, err := provider.StreamCompletion(ctx, &llm.Request{
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	})
//	if err != nil {
//	    return err
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        return chunk.Error
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"

	"github.com/entrhq/browserpilot/pkg/types"
)

// ToolDefinition describes a callable function offered to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Parameters  map[string]interface{}
	Name        string
	Description string
}

// Request is one completion call.
type Request struct {
	Messages []*types.Message
	Tools    []ToolDefinition
}

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication and return StreamChunk values. They
// know nothing about agent events; the agent loop converts chunks into
// events and owns the conversation history.
type Provider interface {
	// StreamCompletion sends the request and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs.
	// Returns an error only if streaming cannot be initiated. Stream-time
	// errors are delivered as chunks with Error set.
	StreamCompletion(ctx context.Context, req *Request) (<-chan *StreamChunk, error)

	// Complete sends the request and returns the accumulated response.
	Complete(ctx context.Context, req *Request) (*types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}
