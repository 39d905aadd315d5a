package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStore is the part of the SSM client used to resolve secrets.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolvePassword fills Password from the SSM parameter named by
// PasswordSSMKey when no password was given directly.
func (c *Configuration) ResolvePassword(ctx context.Context, store ParameterStore) error {
	if c.Password != "" || c.PasswordSSMKey == "" {
		return nil
	}
	out, err := store.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.PasswordSSMKey),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("resolve LDAP password from %s: %w", c.PasswordSSMKey, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return fmt.Errorf("resolve LDAP password from %s: parameter is empty", c.PasswordSSMKey)
	}
	c.Password = aws.ToString(out.Parameter.Value)
	return nil
}
