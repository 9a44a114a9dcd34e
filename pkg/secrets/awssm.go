package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// secretsManagerAPI is the slice of the Secrets Manager client used by
// the provider.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider reads secrets from AWS Secrets Manager.
// A key is a secret id or ARN, optionally suffixed with "#field" to
// select one field from a JSON key/value payload.
type AWSSecretsManagerProvider struct {
	client secretsManagerAPI
}

// NewAWSSecretsManagerProvider creates a provider using the default
// AWS credential chain.
func NewAWSSecretsManagerProvider(ctx context.Context) (*AWSSecretsManagerProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

func (p *AWSSecretsManagerProvider) Name() string {
	return "awssm"
}

func (p *AWSSecretsManagerProvider) Get(ctx context.Context, key string) (string, error) {
	secretID, field, _ := strings.Cut(key, "#")

	output, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretID, err)
	}

	if output.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	if field == "" {
		return *output.SecretString, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(*output.SecretString), &payload); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object, cannot select field %q: %w", secretID, field, err)
	}

	value, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("secret %s has no field %q: %w", secretID, field, ErrSecretNotFound)
	}

	return stringifySecretField(value), nil
}

func stringifySecretField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
