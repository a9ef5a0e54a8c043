package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
)

// TimeLayout is the layout timestamps are rendered with.
const TimeLayout = "2006-01-02 15:04:05"

const usersPath = "/api/v1/users"

type createUserRequest struct {
	Name  string `json:"name" validate:"notblank,max=25"`
	Email string `json:"email" validate:"notblank,email,max=50"`
	Age   *int   `json:"age" validate:"required,gte=0"`
}

// updateUserRequest fields are optional. A missing or null field leaves the stored value untouched.
type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Age   *int    `json:"age"`
}

type userResponse struct {
	UserID    int64  `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Links     links  `json:"_links"`
}

type links struct {
	Self link `json:"self"`
}

type link struct {
	Href string `json:"href"`
}

type errorResponse struct {
	Message string            `json:"message"`
	Details []validationError `json:"details,omitempty"`
}

type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func toUserResponse(r *http.Request, user model.User) userResponse {
	return userResponse{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Age:       user.Age,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
		Links:     links{Self: link{Href: selfLink(r, user.ID)}},
	}
}

func toUserResponses(r *http.Request, users []model.User) []userResponse {
	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(r, u)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// selfLink builds the absolute url of the user resource out of the inbound request.
func selfLink(r *http.Request, id int64) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s%s/%d", scheme, r.Host, usersPath, id)
}
