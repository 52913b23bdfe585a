package sheetdb

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

const tagName = "sheetdb"

// structToFields maps the exported fields of a struct to column names. The
// column name is the `sheetdb` tag when set, the field name otherwise;
// fields tagged "-" are skipped.
func structToFields(record interface{}) (map[string]interface{}, error) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record must be a struct")
	}

	t := v.Type()
	result := map[string]interface{}{}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		name, ok := columnName(fieldType)
		if !ok {
			continue
		}

		value, err := fieldValue(v.Field(i))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldType.Name, err)
		}
		result[name] = value
	}

	return result, nil
}

// fieldValue prefers encoding.TextMarshaler and falls back to JSON for
// composite kinds so that setField can read the value back.
func fieldValue(field reflect.Value) (interface{}, error) {
	if field.Kind() == reflect.Ptr && field.IsNil() {
		return "", nil
	}

	if m, ok := field.Interface().(encoding.TextMarshaler); ok {
		text, err := m.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(text), nil
	}

	switch field.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map:
		data, err := json.Marshal(field.Interface())
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return field.Interface(), nil
	}
}

func columnName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get(tagName)
	switch tag {
	case "-":
		return "", false
	case "":
		return field.Name, true
	default:
		return tag, true
	}
}

func scanIntoSlice(rows []*Row, dest interface{}) error {
	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Ptr || destVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to a slice")
	}

	sliceVal := destVal.Elem()
	elemType := sliceVal.Type().Elem()

	for _, row := range rows {
		elem := reflect.New(elemType).Elem()
		if err := scanRow(row.data, elem); err != nil {
			return err
		}
		sliceVal = reflect.Append(sliceVal, elem)
	}

	destVal.Elem().Set(sliceVal)
	return nil
}

func scanRow(data map[string]string, dest reflect.Value) error {
	if dest.Kind() == reflect.Ptr {
		if dest.IsNil() {
			dest.Set(reflect.New(dest.Type().Elem()))
		}
		dest = dest.Elem()
	}
	if dest.Kind() != reflect.Struct {
		return fmt.Errorf("dest must be a struct")
	}

	t := dest.Type()
	for i := 0; i < dest.NumField(); i++ {
		field := dest.Field(i)
		fieldType := t.Field(i)

		colName, ok := columnName(fieldType)
		if !ok {
			continue
		}

		value, ok := data[colName]
		if !ok {
			continue
		}

		if err := setField(field, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Kind() == reflect.Ptr {
		if value == "" {
			return nil
		}
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return setField(field.Elem(), value)
	}

	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		if value == "" {
			return nil
		}
		return u.UnmarshalText([]byte(value))
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			field.SetUint(i)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Struct, reflect.Slice, reflect.Map:
		if value == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(value), field.Addr().Interface()); err != nil {
			return err
		}
	}

	return nil
}

// toText coerces every value to its text form.
func toText(values map[string]interface{}) map[string]string {
	text := make(map[string]string, len(values))
	for k, v := range values {
		text[k] = textValue(v)
	}
	return text
}

func textValue(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case fmt.Stringer:
		return tv.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
