package schema

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/Skryldev/storefront/apperrors"
	"github.com/Skryldev/storefront/models"
)

// Pagination is the query contract shared by every list endpoint. The
// page bound keeps (page-1)*limit well inside every engine's OFFSET range.
type Pagination struct {
	Page  int `json:"page" validate:"gte=1,lte=1000000"`
	Limit int `json:"limit" validate:"gte=1,lte=100"`
}

// IDParam is the path contract of every /:id route.
type IDParam struct {
	ID int64 `json:"id" validate:"gt=0"`
}

// ParseID coerces a path segment into a positive id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperrors.Validation([]apperrors.FieldError{{Field: "id", Reason: "must be an integer"}})
	}
	param := IDParam{ID: id}
	if err := Validate(&param); err != nil {
		return 0, err
	}
	return param.ID, nil
}

// ParsePagination coerces the page and limit query values. Absent values
// take the defaults; every malformed value is reported.
func ParsePagination(q url.Values) (models.Page, error) {
	p := Pagination{Page: models.DefaultPage, Limit: models.DefaultLimit}
	var fields []apperrors.FieldError

	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"limit", &p.Limit}} {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, apperrors.FieldError{Field: f.name, Reason: "must be an integer"})
			continue
		}
		*f.dst = n
	}

	if err := Validate(&p); err != nil {
		var verr *apperrors.Error
		if !errors.As(err, &verr) {
			return models.Page{}, err
		}
		fields = append(fields, verr.Fields...)
	}
	if len(fields) > 0 {
		return models.Page{}, apperrors.Validation(fields)
	}
	return models.Page{Number: p.Page, Limit: p.Limit}, nil
}
