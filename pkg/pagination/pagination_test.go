package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query   string
		page    int
		perPage int
		offset  int
	}{
		{"", 1, DefaultPerPage, 0},
		{"?page=3&per_page=10", 3, 10, 20},
		{"?page=0&per_page=-5", 1, DefaultPerPage, 0},
		{"?page=abc", 1, DefaultPerPage, 0},
		{"?per_page=500", 1, MaxPerPage, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := FromRequest(httptest.NewRequest(http.MethodGet, "/api/v1/products"+tt.query, nil))
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
			assert.Equal(t, tt.offset, p.Offset())
		})
	}
}

func TestParams_Normalize(t *testing.T) {
	assert.Equal(t, Params{Page: 1, PerPage: DefaultPerPage}, Params{}.Normalize())
	assert.Equal(t, Params{Page: 2, PerPage: MaxPerPage}, Params{Page: 2, PerPage: 1000}.Normalize())
	assert.Equal(t, 40, Params{Page: 3, PerPage: 20}.Normalize().Offset())
}
