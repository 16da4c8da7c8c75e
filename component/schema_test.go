package component

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemaTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    SchemaDirectives
		wantErr bool
	}{
		{
			name: "full directive set",
			tag:  "type:int,description:Listen port,category:basic,default:8080,min:1,max:65535,required",
			want: SchemaDirectives{
				Type:        "int",
				Description: "Listen port",
				Category:    "basic",
				Default:     "8080",
				Required:    true,
				Min:         intPtr(1),
				Max:         intPtr(65535),
			},
		},
		{
			name: "enum values",
			tag:  "type:enum,enum:drop_oldest|drop_newest|block",
			want: SchemaDirectives{Type: "enum", Enum: []string{"drop_oldest", "drop_newest", "block"}},
		},
		{
			name:    "empty tag",
			tag:     "",
			wantErr: true,
		},
		{
			name:    "missing type",
			tag:     "description:no type here",
			wantErr: true,
		},
		{
			name:    "invalid type",
			tag:     "type:complex128",
			wantErr: true,
		},
		{
			name:    "invalid category",
			tag:     "type:string,category:expert",
			wantErr: true,
		},
		{
			name:    "unknown boolean flag",
			tag:     "type:string,optional",
			wantErr: true,
		},
		{
			name:    "non-numeric min",
			tag:     "type:int,min:low",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaTag(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateConfigSchema(t *testing.T) {
	type sinkConfig struct {
		Address     string  `json:"address" schema:"type:string,description:Destination address,required"`
		MaxRate     float64 `json:"max_rate" schema:"type:float,description:Datagrams per second,default:0,category:advanced"`
		BufferSize  int     `json:"buffer_size" schema:"type:int,default:1000,min:1,max:100000"`
		Unannotated string  `json:"plain"`
		Skipped     string  `json:"-"`
	}

	schema := GenerateConfigSchema(reflect.TypeOf(sinkConfig{}))

	require.Contains(t, schema.Properties, "address")
	assert.Equal(t, "string", schema.Properties["address"].Type)
	assert.Equal(t, "Destination address", schema.Properties["address"].Description)
	assert.Equal(t, []string{"address"}, schema.Required)

	require.Contains(t, schema.Properties, "max_rate")
	assert.Equal(t, float64(0), schema.Properties["max_rate"].Default)
	assert.Equal(t, "advanced", schema.Properties["max_rate"].Category)

	require.Contains(t, schema.Properties, "buffer_size")
	assert.Equal(t, 1000, schema.Properties["buffer_size"].Default)
	assert.Equal(t, 1, *schema.Properties["buffer_size"].Minimum)
	assert.Equal(t, 100000, *schema.Properties["buffer_size"].Maximum)

	// Fields without schema tags or without a json name are skipped.
	assert.NotContains(t, schema.Properties, "plain")
	assert.NotContains(t, schema.Properties, "Skipped")
}

func TestGenerateConfigSchemaPointerType(t *testing.T) {
	type cfg struct {
		Host string `json:"host" schema:"type:string"`
	}
	schema := GenerateConfigSchema(reflect.TypeOf(&cfg{}))
	assert.Contains(t, schema.Properties, "host")
}

func TestGenerateConfigSchemaNonStruct(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf("not a struct"))
	assert.Empty(t, schema.Properties)
}

func intPtr(n int) *int { return &n }
