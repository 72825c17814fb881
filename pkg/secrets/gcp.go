package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
)

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID string, logger *logrus.Logger) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: VersionName(g.projectID, secretName),
	}

	result, err := g.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}
	return string(result.Payload.Data), nil
}

func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	if secretName == "" {
		return defaultValue
	}
	value, err := g.GetSecret(ctx, secretName)
	if err != nil {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// VersionName resolves a short secret name to its latest version. Full
// resource names are passed through, pinned versions included.
func VersionName(projectID, secretName string) string {
	if strings.HasPrefix(secretName, "projects/") {
		if strings.Contains(secretName, "/versions/") {
			return secretName
		}
		return secretName + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName)
}

type SecretNames struct {
	BinanceAPIKey    string `mapstructure:"binance_api_key"`
	BinanceAPISecret string `mapstructure:"binance_api_secret"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	APIJWTSecret string `mapstructure:"api_jwt_secret"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		BinanceAPIKey:    "binance-api-key",
		BinanceAPISecret: "binance-api-secret",
		TelegramBotToken: "telegram-bot-token",
		TelegramChatID:   "telegram-chat-id",
		APIJWTSecret:     "basis-arb-api-jwt-secret",
	}
}
