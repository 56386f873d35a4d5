package config

import (
	"reflect"
)

// Overlay copies every non-zero field of src onto dst, recursing into
// structs and merging maps key by key. A zero field in src never clears dst,
// so booleans can only be switched on this way.
func Overlay(dst, src *Config) {
	if dst == nil || src == nil {
		return
	}
	overlayValue(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem())
}

func overlayValue(dst, src reflect.Value) {
	if !dst.CanSet() || !src.IsValid() {
		return
	}

	switch dst.Kind() {
	case reflect.Struct:
		for i := 0; i < dst.NumField(); i++ {
			overlayValue(dst.Field(i), src.Field(i))
		}
	case reflect.Map:
		overlayMap(dst, src)
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

func overlayMap(dst, src reflect.Value) {
	if src.Len() == 0 {
		return
	}
	merged := reflect.MakeMapWithSize(dst.Type(), dst.Len()+src.Len())
	iter := dst.MapRange()
	for iter.Next() {
		merged.SetMapIndex(iter.Key(), iter.Value())
	}

	iter = src.MapRange()
	for iter.Next() {
		existing := merged.MapIndex(iter.Key())
		if !existing.IsValid() || iter.Value().Kind() != reflect.Struct {
			merged.SetMapIndex(iter.Key(), iter.Value())
			continue
		}
		v := reflect.New(existing.Type()).Elem()
		v.Set(existing)
		overlayValue(v, iter.Value())
		merged.SetMapIndex(iter.Key(), v)
	}
	dst.Set(merged)
}
