package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// DBCredentials mirrors the JSON shape of an RDS-managed secret.
type DBCredentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

// FetchDBCredentials reads database credentials from AWS Secrets Manager.
// Used when DB_SECRET_ARN is set; env-based config is the fallback.
func FetchDBCredentials(ctx context.Context, region, secretARN string) (*DBCredentials, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretARN,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching secret: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string payload", secretARN)
	}

	var creds DBCredentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return nil, fmt.Errorf("decoding secret payload: %w", err)
	}
	if creds.Port == 0 {
		creds.Port = 5432
	}
	if creds.DBName == "" {
		creds.DBName = "postgres"
	}
	return &creds, nil
}
