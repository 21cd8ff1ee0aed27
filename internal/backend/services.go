// Package backend exposes typed services over the pharmacy REST API and maps
// every response to the canonical records in package state.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/state"
)

// API is the subset of the API client the services use.
type API interface {
	Get(ctx context.Context, path string, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	Put(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (*apiclient.Response, error)
	Delete(ctx context.Context, path string, opts ...apiclient.RequestOption) (*apiclient.Response, error)
}

// Collection is CRUD over one REST resource.
type Collection[T any] struct {
	api      API
	logger   *logging.Logger
	resource state.Resource
	decode   func(fields) (T, error)
	encode   func(T) (any, error)
	idOf     func(T) string
}

// Services groups one collection per resource plus authentication.
type Services struct {
	Auth          *Auth
	Pacientes     *Collection[state.Paciente]
	Medicamentos  *Collection[state.Medicamento]
	Farmaceuticos *Collection[state.Farmaceutico]
	Tratamentos   *Collection[state.Tratamento]
}

// New builds the services on top of api.
func New(api API, logger *logging.Logger) *Services {
	return &Services{
		Auth: &Auth{api: api, logger: logger},
		Pacientes: &Collection[state.Paciente]{
			api: api, logger: logger, resource: state.ResourcePaciente,
			decode: toPaciente, encode: fromPaciente,
			idOf: func(p state.Paciente) string { return p.ID },
		},
		Medicamentos: &Collection[state.Medicamento]{
			api: api, logger: logger, resource: state.ResourceMedicamento,
			decode: toMedicamento, encode: fromMedicamento,
			idOf: func(m state.Medicamento) string { return m.ID },
		},
		Farmaceuticos: &Collection[state.Farmaceutico]{
			api: api, logger: logger, resource: state.ResourceFarmaceutico,
			decode: toFarmaceutico, encode: fromFarmaceutico,
			idOf: func(f state.Farmaceutico) string { return f.ID },
		},
		Tratamentos: &Collection[state.Tratamento]{
			api: api, logger: logger, resource: state.ResourceTratamento,
			decode: toTratamento, encode: fromTratamento,
			idOf: func(t state.Tratamento) string { return t.ID },
		},
	}
}

// Resource returns the collection's resource.
func (c *Collection[T]) Resource() state.Resource {
	return c.resource
}

// List fetches every record. Records the mapping rejects are logged and
// skipped rather than failing the whole list.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	resp, err := c.api.Get(ctx, c.resource.Path())
	if err != nil {
		return nil, err
	}
	objects, err := decodeObjects(resp.Body)
	if err != nil {
		return nil, &apiclient.DecodeError{Op: "list " + string(c.resource), Err: err}
	}
	records := make([]T, 0, len(objects))
	for i, obj := range objects {
		record, err := c.decode(obj)
		if err != nil {
			c.logger.Warnf("%s: skipping item %d: %v", c.resource, i, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Get fetches one record by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	path, err := c.itemPath(id)
	if err != nil {
		return zero, err
	}
	resp, err := c.api.Get(ctx, path)
	if err != nil {
		return zero, err
	}
	obj, err := decodeObject(resp.Body)
	if err != nil {
		return zero, &apiclient.DecodeError{Op: "get " + string(c.resource), Err: err}
	}
	record, err := c.decode(obj)
	if err != nil {
		return zero, &apiclient.DecodeError{Op: "get " + string(c.resource), Err: err}
	}
	return record, nil
}

// Create posts a new record. When the backend echoes the stored record it is
// returned; otherwise the input comes back unchanged.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	payload, err := c.encode(record)
	if err != nil {
		return record, err
	}
	resp, err := c.api.Post(ctx, c.resource.Path(), payload)
	if err != nil {
		return record, err
	}
	return c.echoed(resp, record), nil
}

// Update replaces the record identified by its ID.
func (c *Collection[T]) Update(ctx context.Context, record T) (T, error) {
	path, err := c.itemPath(c.idOf(record))
	if err != nil {
		return record, err
	}
	payload, err := c.encode(record)
	if err != nil {
		return record, err
	}
	resp, err := c.api.Put(ctx, path, payload)
	if err != nil {
		return record, err
	}
	return c.echoed(resp, record), nil
}

// Save creates records without an ID and updates the others.
func (c *Collection[T]) Save(ctx context.Context, record T) (T, error) {
	if strings.TrimSpace(c.idOf(record)) == "" {
		return c.Create(ctx, record)
	}
	return c.Update(ctx, record)
}

// Delete removes the record with id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	path, err := c.itemPath(id)
	if err != nil {
		return err
	}
	_, err = c.api.Delete(ctx, path)
	return err
}

func (c *Collection[T]) itemPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s: id is empty", c.resource)
	}
	return c.resource.Path() + "/" + url.PathEscape(id), nil
}

func (c *Collection[T]) echoed(resp *apiclient.Response, fallback T) T {
	obj, err := decodeObject(resp.Body)
	if err != nil || obj == nil {
		return fallback
	}
	record, err := c.decode(obj)
	if err != nil {
		return fallback
	}
	return record
}
