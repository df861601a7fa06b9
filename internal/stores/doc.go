// Package stores adapts cloud secret managers to secretstore.Store.
//
// Every adapter follows the same shape: a narrow client interface over the
// SDK calls it needs (so tests can inject fakes), a constructor that makes no
// network calls, and a single translateError that turns SDK errors into
// *secretstore.NotFoundError or *secretstore.Error carrying an
// HTTP-equivalent status. SDK-level retries are disabled; retry policy lives
// in internal/retry.
//
// Supported types:
//
//	azure.keyvault       Azure Key Vault secrets
//	aws.secretsmanager   AWS Secrets Manager
//	aws.ssm              AWS Systems Manager Parameter Store
//	gcp.secretmanager    Google Cloud Secret Manager
//	vault                HashiCorp Vault KV v2
//	memory               in-process store for tests and dry runs
package stores
