// Package validator checks incoming requests against the OpenAPI document.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "character-nexus/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates requests against an OpenAPI specification
type OpenAPIValidator struct {
	doc        *openapi3.T
	router     routers.Router
	schemaPath string
	mutex      sync.RWMutex
}

// NewOpenAPIValidator loads and validates the document at schemaPath.
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	v := &OpenAPIValidator{schemaPath: schemaPath}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

func loadDocument(path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	return doc, nil
}

// Reload re-reads the document from disk.
func (v *OpenAPIValidator) Reload() error {
	doc, err := loadDocument(v.schemaPath)
	if err != nil {
		return err
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.doc = doc
	v.router = router
	return nil
}

// Middleware rejects requests that violate the document. Routes the document
// does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		v.mutex.RLock()
		router := v.router
		v.mutex.RUnlock()

		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			_ = c.Error(requestError(err))
			c.Abort()
			return
		}

		c.Next()
	}
}

// requestError lists each violation as a field error.
func requestError(err error) *apperrors.AppError {
	var fields []apperrors.FieldError
	collect(err, &fields)
	return apperrors.NewValidationError("Invalid request", fields)
}

func collect(err error, out *[]apperrors.FieldError) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, child := range e {
			collect(child, out)
		}
	case *openapi3filter.RequestError:
		field := "body"
		if e.Parameter != nil {
			field = e.Parameter.Name
		}
		if nested, ok := e.Err.(openapi3.MultiError); ok {
			for _, child := range nested {
				collect(&openapi3filter.RequestError{Parameter: e.Parameter, RequestBody: e.RequestBody, Err: child}, out)
			}
			return
		}
		var schemaErr *openapi3.SchemaError
		if errors.As(e.Err, &schemaErr) {
			if path := strings.Join(schemaErr.JSONPointer(), "."); path != "" {
				field = field + "." + path
			}
			*out = append(*out, apperrors.FieldError{Field: field, Message: schemaErr.Reason})
			return
		}
		*out = append(*out, apperrors.FieldError{Field: field, Message: e.Error()})
	default:
		*out = append(*out, apperrors.FieldError{Field: "request", Message: err.Error()})
	}
}
