package qtree

// Error types attached with errors.WithType. Callers match them with
// errors.IsType.
const (
	ErrTypeInvalidLevel     = "invalid_level"
	ErrTypeOutOfDomain      = "out_of_domain"
	ErrTypeShapeMismatch    = "shape_mismatch"
	ErrTypeCapacityExceeded = "capacity_exceeded"
	ErrTypeInvalidConfig    = "invalid_config"
	ErrTypeRegistryClosed   = "registry_closed"
	ErrTypeRegistryNotFound = "registry_not_found"
)
