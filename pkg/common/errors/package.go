// Package errors provides the common error types for the clusterkb
// components. This package is designed to avoid circular dependencies
// between the store client, the embedding providers, and the search
// services that compose them.
//
// Every failure that crosses a package boundary is wrapped in an *Error
// carrying the failing component, the operation, a stable ErrorType, and
// the underlying cause. Callers branch on the type through the Is*
// predicates rather than matching message strings.
package errors
