package kernel

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openapiDocument []byte

// OpenAPIDocument returns the embedded API description.
func OpenAPIDocument() []byte {
	return openapiDocument
}

// LoadOpenAPI parses and validates the embedded document.
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// requestValidator checks requests against the OpenAPI document before they
// reach a handler. Paths the document does not describe pass through.
type requestValidator struct {
	logger *slog.Logger
	router routers.Router
	onFail func(w http.ResponseWriter, r *http.Request, route *routers.Route, err error)
}

func newRequestValidator(logger *slog.Logger, doc *openapi3.T, onFail func(http.ResponseWriter, *http.Request, *routers.Route, error)) (*requestValidator, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &requestValidator{logger: logger, router: router, onFail: onFail}, nil
}

func (v *requestValidator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		// Bodies are read as JSON whatever Content-Type the client sent.
		check := r
		if r.ContentLength != 0 && route.Operation.RequestBody != nil {
			check = r.Clone(r.Context())
			check.Header.Set("Content-Type", "application/json")
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    check,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.logger.Debug("request rejected by openapi validation", "path", r.URL.Path, "error", err)
			v.onFail(w, r, route, err)
			return
		}

		// ValidateRequest rewinds the body it consumed on the request it was given.
		if check != r {
			r.Body = check.Body
		}
		next.ServeHTTP(w, r)
	})
}
