package errors

// Code is a stable, machine-readable error identifier of the form
// CATEGORY_NNN. Codes are never reassigned once published.
type Code string

const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"
	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"
	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"
	// CodeValidationRange indicates a value is outside its allowed length or range.
	CodeValidationRange Code = "VAL_004"
	// CodeValidationMissingEmail indicates a provider lifecycle event carried
	// no email address for a user that must be provisioned.
	CodeValidationMissingEmail Code = "VAL_005"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"
	// CodeAuthenticationExpired indicates the token's exp claim is in the past.
	CodeAuthenticationExpired Code = "AUTH_002"
	// CodeAuthenticationInvalid indicates a structurally malformed token:
	// wrong scheme, wrong segment count, or a missing iss, kid or sub.
	CodeAuthenticationInvalid Code = "AUTH_003"
	// CodeAuthenticationMissing indicates no credential was presented.
	CodeAuthenticationMissing Code = "AUTH_004"
	// CodeAuthenticationUnknownKey indicates the token's kid is not in the
	// issuer's published key set, even after a forced refresh.
	CodeAuthenticationUnknownKey Code = "AUTH_005"
	// CodeAuthenticationSignature indicates the token signature did not verify.
	CodeAuthenticationSignature Code = "AUTH_006"
	// CodeAuthenticationIssuer indicates the verified iss claim does not
	// match the issuer whose keys were used, or is not allow-listed.
	CodeAuthenticationIssuer Code = "AUTH_007"
	// CodeAuthenticationWebhook indicates a webhook delivery failed
	// signature or timestamp verification.
	CodeAuthenticationWebhook Code = "AUTH_008"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"
	// CodeNotFoundAccount indicates no live account matches the lookup.
	CodeNotFoundAccount Code = "NF_004"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"
	// CodeConflictAlreadyExists indicates a uniqueness constraint rejected a write.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"
	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"
	// CodeInternalConfiguration indicates invalid or missing configuration.
	CodeInternalConfiguration Code = "INT_003"
	// CodeInternalKeyMaterial indicates a published JWK could not be turned
	// into a usable RSA public key.
	CodeInternalKeyMaterial Code = "INT_004"
	// CodeInternalAccountCreation indicates an account could not be
	// provisioned and could not be recovered after a conflict.
	CodeInternalAccountCreation Code = "INT_005"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"
	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"
	// CodeUnavailableJWKS indicates the issuer's key set could not be
	// fetched: network failure, non-2xx response, or malformed body.
	CodeUnavailableJWKS Code = "UNAVAIL_004"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"
	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
	// CodeTimeoutDependency indicates a call to a dependent service timed out.
	CodeTimeoutDependency Code = "TIMEOUT_003"
)

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_005"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
