package featureflag

type Flag string

const (
	FlagDisableRegistryEndpoints Flag = "DISABLE_REGISTRY_ENDPOINTS"
	FlagDisableBlockEndpoint     Flag = "DISABLE_BLOCK_ENDPOINT"
)
