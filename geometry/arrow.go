package geometry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ExtensionName is the Arrow extension name for WKB-encoded geometry columns.
const ExtensionName = "geoarrow.wkb"

// WKBType is the geoarrow.wkb Arrow extension type. Values are stored as WKB
// in a Binary or LargeBinary column.
type WKBType struct {
	arrow.ExtensionBase
}

// NewWKBType returns a geoarrow.wkb type over Binary storage.
func NewWKBType() *WKBType {
	return &WKBType{ExtensionBase: arrow.ExtensionBase{Storage: arrow.BinaryTypes.Binary}}
}

// WKBArray is the array type backing WKBType columns.
type WKBArray struct {
	array.ExtensionArrayBase
}

// ArrayType returns the Go type of arrays holding this extension.
func (t *WKBType) ArrayType() reflect.Type {
	return reflect.TypeOf(WKBArray{})
}

// ExtensionName returns geoarrow.wkb.
func (t *WKBType) ExtensionName() string { return ExtensionName }

// String implements fmt.Stringer.
func (t *WKBType) String() string { return "extension<" + ExtensionName + ">" }

// Serialize returns the extension metadata. The type carries none; the CRS
// lives in the field metadata written by NewField.
func (t *WKBType) Serialize() string { return "" }

// Deserialize rebuilds the type from its storage. Only Binary and
// LargeBinary storage are accepted.
func (t *WKBType) Deserialize(storage arrow.DataType, _ string) (arrow.ExtensionType, error) {
	if !arrow.TypeEqual(storage, arrow.BinaryTypes.Binary) &&
		!arrow.TypeEqual(storage, arrow.BinaryTypes.LargeBinary) {
		return nil, fmt.Errorf("invalid storage type for %s: %s", ExtensionName, storage)
	}
	return &WKBType{ExtensionBase: arrow.ExtensionBase{Storage: storage}}, nil
}

// ExtensionEquals reports whether other is geoarrow.wkb over the same
// storage type.
func (t *WKBType) ExtensionEquals(other arrow.ExtensionType) bool {
	o, ok := other.(*WKBType)
	return ok && arrow.TypeEqual(t.StorageType(), o.StorageType())
}

type crsMetadata struct {
	CRS struct {
		ID struct {
			Authority string `json:"authority"`
			Code      int    `json:"code"`
		} `json:"id"`
	} `json:"crs"`
	Encoding string `json:"encoding"`
}

// NewField returns an Arrow field of type geoarrow.wkb tagged with SRID 4326.
func NewField(name string, nullable bool) arrow.Field {
	var md crsMetadata
	md.CRS.ID.Authority = "EPSG"
	md.CRS.ID.Code = SRID
	md.Encoding = "WKB"
	mdJSON, _ := json.Marshal(md)

	return arrow.Field{
		Name:     name,
		Type:     NewWKBType(),
		Nullable: nullable,
		Metadata: arrow.MetadataFrom(map[string]string{
			"ARROW:extension:name":     ExtensionName,
			"ARROW:extension:metadata": string(mdJSON),
			"srid":                     strconv.Itoa(SRID),
		}),
	}
}

// IsGeometryField reports whether an Arrow field carries WKB geometry, either
// through the extension type or through extension-name metadata.
func IsGeometryField(f arrow.Field) bool {
	if ext, ok := f.Type.(arrow.ExtensionType); ok && ext.ExtensionName() == ExtensionName {
		return true
	}
	if name, ok := f.Metadata.GetValue("ARROW:extension:name"); ok && name == ExtensionName {
		return true
	}
	return false
}

func init() {
	_ = arrow.RegisterExtensionType(NewWKBType())
}
