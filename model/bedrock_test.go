package model

import (
	"errors"
	"fmt"
	"testing"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

// fakeAPIError is a minimal smithy.APIError implementation for exercising
// isBedrockThrottled without a live Bedrock client.
type fakeAPIError struct {
	code string
}

func (e fakeAPIError) Error() string                 { return fmt.Sprintf("api error: %s", e.code) }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.ErrorFault(0) }

func TestIsBedrockThrottledRecognizesThrottlingCodes(t *testing.T) {
	require.True(t, isBedrockThrottled(fakeAPIError{code: "ThrottlingException"}))
	require.True(t, isBedrockThrottled(fakeAPIError{code: "TooManyRequestsException"}))
	require.True(t, isBedrockThrottled(fmt.Errorf("wrapped: %w", fakeAPIError{code: "ThrottlingException"})))
}

func TestIsBedrockThrottledIgnoresOtherErrors(t *testing.T) {
	require.False(t, isBedrockThrottled(fakeAPIError{code: "ValidationException"}))
	require.False(t, isBedrockThrottled(errors.New("boom")))
	require.False(t, isBedrockThrottled(nil))
}
