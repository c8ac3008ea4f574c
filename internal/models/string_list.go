package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringList is an ordered list of strings stored as a text[] column on
// postgres. Other dialects keep the same array literal in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// GormDataType names the field type for schema parsing; the column type per
// dialect comes from GormDBDataType.
func (StringList) GormDataType() string {
	return "stringlist"
}

func (StringList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}
