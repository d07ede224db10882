package secrets

// Ref names a secret in Key Vault and the environment variable that may override it
type Ref struct {
	Vault string
	Env   string
}

var (
	DatabaseHost            = Ref{Vault: "POSTGRES-MAIN-HOST", Env: "DATABASE_HOST"}
	DatabaseUser            = Ref{Vault: "POSTGRES-MAIN-USER", Env: "DATABASE_USER"}
	DatabasePassword        = Ref{Vault: "POSTGRES-MAIN-PASSWORD", Env: "DATABASE_PASSWORD"}
	AzureTenantID           = Ref{Vault: "azure-tenant-id", Env: "AZURE_TENANT_ID"}
	AzureClientID           = Ref{Vault: "azure-client-id", Env: "AZURE_CLIENT_ID"}
	AdminAPIKey             = Ref{Vault: "admin-api-key", Env: "ADMIN_API_KEY"}
	StorageConnectionString = Ref{Vault: "storage-connection-string", Env: "STORAGE_CLOUDCONNECTIONSTRING"}
	// SheetsServiceAccount holds the Google service account key used by the mirror
	SheetsServiceAccount = Ref{Vault: "SHEETS-SERVICE-ACCOUNT", Env: "SHEETS_CREDENTIALSJSON"}
)
