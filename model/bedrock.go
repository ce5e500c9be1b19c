package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	smithy "github.com/aws/smithy-go"
)

// BedrockClient adapts aws-sdk-go-v2's bedrockruntime to the Client
// interface, for deployments that route atp.llm calls through an
// organization's existing AWS model gateway instead of a provider's own API.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient builds a Client backed by the Bedrock Runtime
// InvokeModel API, using the given anthropic.*-family model ID.
func NewBedrockClient(client *bedrockruntime.Client, modelID string) *BedrockClient {
	return &BedrockClient{client: client, modelID: modelID}
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string            `json:"anthropic_version"`
	MaxTokens        int               `json:"max_tokens"`
	Messages         []bedrockMessage  `json:"messages"`
	System           string            `json:"system,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := c.modelID
	if req.Model != "" {
		modelID = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body := bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			body.System = m.Content
			continue
		}
		body.Messages = append(body.Messages, bedrockMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		if isBedrockThrottled(err) {
			return Response{}, ErrRateLimited
		}
		return Response{}, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var decoded bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return Response{}, err
	}

	var content string
	for _, c := range decoded.Content {
		content += c.Text
	}

	return Response{
		Content: content,
		Usage: TokenUsage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
		},
	}, nil
}

// isBedrockThrottled reports whether err carries Bedrock's throttling error
// code, checked via the generic smithy API-error interface rather than a
// concrete exception type so it also catches the shape API Gateway fronts
// wrap Bedrock responses in.
func isBedrockThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	return false
}
