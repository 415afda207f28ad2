package discovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/typemap"
)

func TestFactoryDispatch(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"postgresql", &Postgres{}},
		{"oracle", &Oracle{}},
		{"sqlserver", &SQLServer{}},
		{"mysql", &MySQL{}},
		{"mongodb", &Mongo{}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			c, err := New(&config.SourceConfig{Type: tt.typ, Host: "localhost", Port: 1}, nil)
			require.NoError(t, err)
			defer c.Close()
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestFactoryDispatch_Unsupported(t *testing.T) {
	_, err := New(&config.SourceConfig{Type: "db2"}, nil)
	var use *UnsupportedSourceError
	require.True(t, errors.As(err, &use), "expected UnsupportedSourceError, got %v", err)
	assert.Equal(t, "db2", use.Type)

	tm, _ := typemap.ForDatabase("postgresql")
	_, err = New(&config.SourceConfig{Type: "db2"}, tm)
	assert.ErrorAs(t, err, &use)
}

func TestTablesResponseGroupsBySchema(t *testing.T) {
	resp := tablesResponse([]objectRow{
		{"sales", "orders"},
		{"dbo", "customers"},
		{"sales", "shapes"},
	})

	require.True(t, resp.IsSuccess)
	assert.Equal(t, []catalog.SchemaTables{
		{SchemaName: "sales", TableNames: []string{"orders", "shapes"}},
		{SchemaName: "dbo", TableNames: []string{"customers"}},
	}, resp.SchemaTablesList)
}

func TestViewsResponseEmpty(t *testing.T) {
	resp := viewsResponse(nil)
	assert.True(t, resp.IsSuccess)
	assert.NotNil(t, resp.SchemaViewsList)
	assert.Empty(t, resp.SchemaViewsList)
}

func TestColumnSupport(t *testing.T) {
	tm, err := typemap.ForDatabase("sqlserver")
	require.NoError(t, err)

	assert.True(t, column(tm, "id", "int", false, "").IsSupported)
	assert.False(t, column(tm, "shape", "geometry", true, "").IsSupported)

	tm.Override("geometry", typemap.SQLVarBinary)
	assert.True(t, column(tm, "shape", "geometry", true, "").IsSupported)
}
