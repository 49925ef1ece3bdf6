package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
)

var durationType = reflect.TypeOf(time.Duration(0))

// LoadFile reads KEY=VALUE pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are ignored so the same binary runs with or without a .env.
func LoadFile(paths ...string) error {
	for _, p := range paths {
		_, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		err = godotenv.Load(p)
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}

	return nil
}

// Load fills dst from environment variables named by `env:"NAME"` tags.
//
// A field without a `default:"..."` tag is required. Untagged struct fields
// (and pointers to structs) are loaded recursively; time.Duration is parsed
// with time.ParseDuration and slices are comma-separated. Every missing or
// malformed variable is reported, not just the first one.
func Load(dst any) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("destination must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("destination must point to a struct")
	}

	var errs []error

	loadStruct(v, "", &errs)

	return errors.Join(errs...)
}

// loadStruct walks v and appends one error per bad field. path prefixes
// field names of nested structs in messages.
func loadStruct(v reflect.Value, path string, errs *[]error) {
	t := v.Type()

	for i := range v.NumField() {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		name := path + sf.Name

		tag := sf.Tag.Get("env")
		switch {
		case tag == "-":
			continue
		case tag == "" && fv.Kind() == reflect.Struct && sf.Type != durationType:
			loadStruct(fv, name+".", errs)

			continue
		case tag == "" && fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}

			loadStruct(fv.Elem(), name+".", errs)

			continue
		case tag == "":
			continue
		}

		raw, ok := os.LookupEnv(tag)
		if !ok {
			def, hasDefault := sf.Tag.Lookup("default")
			if !hasDefault {
				*errs = append(*errs, fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, tag, name))

				continue
			}

			raw = def
		}

		err := setValue(fv, raw)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("parse %q for field %q: %w", tag, name, err))
		}
	}
}

//nolint:gocognit,cyclop
func setValue(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			err := u.UnmarshalText([]byte(raw))
			if err != nil {
				return fmt.Errorf("unmarshal text: %w", err)
			}

			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)

		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		fv.SetBool(b)

		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		fv.SetInt(i)

		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		fv.SetUint(u)

		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}

		fv.SetFloat(f)

		return nil
	case reflect.Slice:
		parts := splitList(raw)
		out := reflect.MakeSlice(fv.Type(), len(parts), len(parts))

		for i, p := range parts {
			err := setValue(out.Index(i), p)
			if err != nil {
				return fmt.Errorf("parse element %d: %w", i, err)
			}
		}

		fv.Set(out)

		return nil
	case reflect.Pointer:
		if fv.IsNil() {
			elem := reflect.New(fv.Type().Elem())

			err := setValue(elem.Elem(), raw)
			if err != nil {
				return fmt.Errorf("parse pointer: %w", err)
			}

			fv.Set(elem)

			return nil
		}

		err := setValue(fv.Elem(), raw)
		if err != nil {
			return fmt.Errorf("parse pointer: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("unsupported type: %w", ErrUnsupportedType)
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := parts[:0]

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
