// Package errors defines the error taxonomy shared by the identity service.
//
// Every failure that crosses a package boundary is an [*Error] carrying a
// stable machine-readable [Code]. The code prefix selects the category and
// therefore the HTTP status the API surface returns:
//
//	VAL_xxx     400  request or payload failed validation
//	AUTH_xxx    401  bearer token or webhook signature rejected
//	NF_xxx      404  account does not exist or is soft-deleted
//	CONF_xxx    409  uniqueness conflict in the account store
//	INT_xxx     500  storage failure, key material failure, provisioning failure
//	UNAVAIL_xxx 503  identity provider or other dependency unreachable
//	TIMEOUT_xxx 504  operation exceeded its deadline
//
// AUTH_xxx always means the caller presented a bad credential. A failure to
// reach the identity provider is UNAVAIL_004, never an AUTH code.
//
// The package is imported under the alias sserr throughout the module:
//
//	import sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
//
//	if sserr.IsAuthentication(err) {
//	    w.WriteHeader(http.StatusUnauthorized)
//	}
package errors
