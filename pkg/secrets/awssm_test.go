package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// fakeSecretsManager simulates the Secrets Manager API.
type fakeSecretsManager struct {
	secrets map[string]string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
	optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	value, ok := f.secrets[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(value)}, nil
}

func newTestProvider(secrets map[string]string) *AWSSecretsManagerProvider {
	return &AWSSecretsManagerProvider{client: &fakeSecretsManager{secrets: secrets}}
}

func TestAWSSecretsManagerProvider_Name(t *testing.T) {
	p := newTestProvider(nil)
	if p.Name() != "awssm" {
		t.Errorf("Name: got %q, want %q", p.Name(), "awssm")
	}
}

func TestAWSSecretsManagerProvider_Get(t *testing.T) {
	p := newTestProvider(map[string]string{
		"prod/db":    `{"password": "hunter2", "port": 5432, "ssl": true}`,
		"plain-text": "just-a-value",
	})
	ctx := context.Background()

	t.Run("whole secret", func(t *testing.T) {
		value, err := p.Get(ctx, "plain-text")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "just-a-value" {
			t.Errorf("Value: got %q, want %q", value, "just-a-value")
		}
	})

	t.Run("json field", func(t *testing.T) {
		value, err := p.Get(ctx, "prod/db#password")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "hunter2" {
			t.Errorf("Value: got %q, want %q", value, "hunter2")
		}
	})

	t.Run("numeric field stringified", func(t *testing.T) {
		value, err := p.Get(ctx, "prod/db#port")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "5432" {
			t.Errorf("Value: got %q, want %q", value, "5432")
		}
	})

	t.Run("boolean field stringified", func(t *testing.T) {
		value, err := p.Get(ctx, "prod/db#ssl")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if value != "true" {
			t.Errorf("Value: got %q, want %q", value, "true")
		}
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := p.Get(ctx, "missing")
		if !errors.Is(err, ErrSecretNotFound) {
			t.Errorf("Expected ErrSecretNotFound, got %v", err)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := p.Get(ctx, "prod/db#nope")
		if !errors.Is(err, ErrSecretNotFound) {
			t.Errorf("Expected ErrSecretNotFound, got %v", err)
		}
	})

	t.Run("field on non-json secret", func(t *testing.T) {
		_, err := p.Get(ctx, "plain-text#field")
		if err == nil || !strings.Contains(err.Error(), "not a JSON object") {
			t.Errorf("Expected JSON object error, got %v", err)
		}
	})
}
