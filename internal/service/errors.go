package service

import (
	"errors"

	"github.com/samber/oops"

	"github.com/agrotrack/plotmanager/internal/domain"
)

var domainErrors = []error{
	domain.ErrValidation,
	domain.ErrDuplicate,
	domain.ErrUnauthenticated,
	domain.ErrInvalidToken,
	domain.ErrPrincipalNotFound,
	domain.ErrInvalidCredentials,
	domain.ErrForbidden,
	domain.ErrNotFound,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrap attaches service context to unexpected errors. Domain errors pass
// through untouched so the HTTP boundary can classify them.
func wrap(err error, domainName, code string, kv ...any) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return oops.In(domainName).Code(code).With(kv...).Wrap(err)
}

// mergeValidation folds the fields of a ValidationError into v
func mergeValidation(v *domain.ValidationError, err error) {
	var other *domain.ValidationError
	if errors.As(err, &other) {
		for field, msg := range other.Fields {
			v.Add(field, msg)
		}
	}
}
