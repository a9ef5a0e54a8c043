package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	grpcactor "github.com/rbroggi/userlifecycle/internal/actors/grpc"
	"github.com/rbroggi/userlifecycle/internal/core/model"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
)

const maxBodyBytes = 1 << 20

// HandlerArgs are the mandatory args to instantiate the Handler.
type HandlerArgs struct {
	// Usecase is the usecase for user-service
	Usecase userServiceUsecase

	// Health reports readiness on /healthz. Optional; without it /healthz always succeeds.
	Health healthChecker
}

// Handler exposes the user-service over REST.
type Handler struct {
	usecase   userServiceUsecase
	health    healthChecker
	validate  *validator.Validate
	marshaler runtime.Marshaler
}

// NewHandler creates a new Handler.
func NewHandler(args HandlerArgs) (*Handler, error) {
	if args.Usecase == nil {
		return nil, errors.New("nil usecase")
	}
	validate, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &Handler{
		usecase:   args.Usecase,
		health:    args.Health,
		validate:  validate,
		marshaler: &runtime.JSONBuiltin{},
	}, nil
}

// Register binds the routes on mux.
func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, usersPath, h.createUser},
		{http.MethodGet, usersPath, h.listUsers},
		{http.MethodGet, usersPath + "/{id}", h.getUser},
		{http.MethodPut, usersPath + "/{id}", h.updateUser},
		{http.MethodDelete, usersPath + "/{id}", h.deleteUser},
		{http.MethodGet, "/healthz", h.healthz},
	}
	for _, route := range routes {
		if err := mux.HandlePath(route.method, route.pattern, route.handler); err != nil {
			return fmt.Errorf("error registering %s %s: %w", route.method, route.pattern, err)
		}
	}
	return nil
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if errs := validateCreate(h.validate, req); len(errs) > 0 {
		h.writeValidationErrors(w, errs)
		return
	}

	resp, err := h.usecase.CreateUser(r.Context(), model.CreateUserArgs{
		Name:  req.Name,
		Email: req.Email,
		Age:   *req.Age,
	})
	if err != nil {
		h.writeError(w, err, errorMessage(err, 0, req.Email))
		return
	}
	h.write(w, http.StatusCreated, toUserResponse(r, resp.User))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id, ok := h.parseID(w, pathParams)
	if !ok {
		return
	}
	resp, err := h.usecase.GetUser(r.Context(), model.GetUserArgs{ID: id})
	if err != nil {
		h.writeError(w, err, errorMessage(err, id, ""))
		return
	}
	h.write(w, http.StatusOK, toUserResponse(r, resp.User))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := h.usecase.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.write(w, http.StatusOK, toUserResponses(r, resp.Users))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id, ok := h.parseID(w, pathParams)
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if errs := validateUpdate(h.validate, req); len(errs) > 0 {
		h.writeValidationErrors(w, errs)
		return
	}

	resp, err := h.usecase.UpdateUser(r.Context(), model.UpdateUserArgs{
		ID:    id,
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	})
	if err != nil {
		email := ""
		if req.Email != nil {
			email = *req.Email
		}
		h.writeError(w, err, errorMessage(err, id, email))
		return
	}
	h.write(w, http.StatusOK, toUserResponse(r, resp.User))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id, ok := h.parseID(w, pathParams)
	if !ok {
		return
	}
	if err := h.usecase.DeleteUser(r.Context(), model.DeleteUserArgs{ID: id}); err != nil {
		h.writeError(w, err, errorMessage(err, id, ""))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	if h.health != nil && !h.health.Serving() {
		h.write(w, http.StatusServiceUnavailable, healthResponse{Status: "NOT_SERVING"})
		return
	}
	h.write(w, http.StatusOK, healthResponse{Status: "SERVING"})
}

func (h *Handler) parseID(w http.ResponseWriter, pathParams map[string]string) (int64, bool) {
	id, err := runtime.Int64(pathParams["id"])
	if err != nil || id <= 0 {
		h.write(w, http.StatusBadRequest, errorResponse{Message: fmt.Sprintf("invalid user id %q", pathParams["id"])})
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := h.marshaler.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		log.WithError(err).Debug("malformed request body")
		h.write(w, http.StatusBadRequest, errorResponse{Message: "malformed request body"})
		return false
	}
	return true
}

func (h *Handler) writeValidationErrors(w http.ResponseWriter, errs []validationError) {
	h.write(w, http.StatusBadRequest, errorResponse{Message: "Invalid request data", Details: errs})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	st := grpcactor.StatusFromError(err, msg)
	switch st.Code() {
	case codes.NotFound, codes.AlreadyExists:
		log.WithError(err).Warn(msg)
	default:
		log.WithError(err).Error("error invoking usecase")
	}
	h.write(w, runtime.HTTPStatusFromCode(st.Code()), errorResponse{Message: st.Message()})
}

func (h *Handler) write(w http.ResponseWriter, status int, v interface{}) {
	body, err := h.marshaler.Marshal(v)
	if err != nil {
		log.WithError(err).Error("error marshaling response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", h.marshaler.ContentType(v))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.WithError(err).Debug("error writing response")
	}
}

func errorMessage(err error, id int64, email string) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fmt.Sprintf("User with id %d not found", id)
	case errors.Is(err, model.ErrAlreadyExists):
		return fmt.Sprintf("User with email %s already exists", email)
	default:
		return ""
	}
}

// userServiceUsecase
type userServiceUsecase interface {
	// CreateUser creates a user.
	CreateUser(ctx context.Context, args model.CreateUserArgs) (*model.CreateUserResponse, error)

	// GetUser fetches a user by id.
	GetUser(ctx context.Context, args model.GetUserArgs) (*model.GetUserResponse, error)

	// ListUsers lists every user.
	ListUsers(ctx context.Context) (*model.ListUsersResponse, error)

	// UpdateUser updates a user.
	UpdateUser(ctx context.Context, args model.UpdateUserArgs) (*model.UpdateUserResponse, error)

	// DeleteUser deletes a user.
	DeleteUser(ctx context.Context, args model.DeleteUserArgs) error
}

type healthChecker interface {
	Serving() bool
}
