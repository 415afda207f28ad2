package config

import (
	"testing"
)

func TestResolveValue_AWSSM_Integration(t *testing.T) {
	// Without valid AWS credentials, this should fail gracefully
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_REGION", "us-east-1")

	_, err := ResolveValue("${AWS_SM:nonexistent-secret}")
	if err == nil {
		t.Error("expected error when AWS credentials are not configured")
	}
}

func TestSecretField(t *testing.T) {
	secret := `{"username":"svc","password":"p@ss","port":1433}`

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"string field", "password", "p@ss", false},
		{"missing field", "token", "", true},
		{"non-string field", "port", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := secretField("db-creds", secret, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("secretField error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("secretField = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := secretField("db-creds", "not json", "password"); err == nil {
		t.Error("expected error for a non-JSON secret")
	}
}
