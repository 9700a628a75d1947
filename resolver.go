package taskflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Зарезервированные ключи карты входов. Их значения после разрешения
// попадают в одноимённые поля RunContext; все остальные ключи
// собираются в ExtraInputs.
var reservedKeys = map[string]struct{}{
	"input":           {},
	"model":           {},
	"model_settings":  {},
	"usage_limits":    {},
	"usage":           {},
	"message_history": {},
	"pre_hooks":       {},
	"post_hooks":      {},
	"extra_inputs":    {},
}

// resolver разрешает ссылки {{...}} в значениях входов относительно
// состояния одного запуска.
type resolver struct {
	aliases map[string]aliasTarget
	state   *runState
}

// aliasTarget — цель алиаса: шаг и путь внутри его результата.
type aliasTarget struct {
	step string
	key  string
}

// resolveValue разрешает одно значение входа. Строки без {{ и значения
// других типов возвращаются без изменений. Строка "{{input}}"
// подставляет исходный вход запуска целиком.
func (r *resolver) resolveValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.Contains(s, "{{") {
		return v, nil
	}
	if strings.Contains(s, "{{input}}") {
		return r.state.input, nil
	}

	ref, ok := singleRef(s)
	if !ok {
		return nil, &ResolveError{
			Ref:     s,
			Message: fmt.Sprintf("reference %q must be a single {{...}} expression", s),
			Err:     ErrMalformedReference,
		}
	}
	if ref == "input" {
		return r.state.input, nil
	}

	if target, ok := r.aliases[ref]; ok {
		return r.resolveAlias(ref, target)
	}
	return r.resolvePath(ref)
}

// resolveInput разрешает карту входов шага и раскладывает результат
// на зарезервированные ключи и extra_inputs.
func (r *resolver) resolveInput(input map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(input)+1)
	extra := make(map[string]any)
	for key, value := range input {
		rv, err := r.resolveValue(value)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		if _, ok := reservedKeys[key]; ok {
			resolved[key] = rv
		} else {
			extra[key] = rv
		}
	}
	resolved["extra_inputs"] = extra
	return resolved, nil
}

// resolvePrompt рендерит шаблон промпта, подставляя значения ключей
// {{key}} из extra_inputs. Ключ без значения — ошибка; скобки, не
// образующие ключ-идентификатор, остаются как есть.
func (r *resolver) resolvePrompt(tmpl string, extra map[string]any) (string, error) {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var sb strings.Builder
	rest := tmpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:open])
		tail := rest[open+2:]
		clo := strings.Index(tail, "}}")
		if clo < 0 {
			sb.WriteString(rest[open:])
			break
		}
		key := tail[:clo]
		if !isWord(key) {
			sb.WriteString("{{")
			rest = tail
			continue
		}
		value, ok := extra[key]
		if !ok {
			return "", &ResolveError{
				Ref:     key,
				Message: fmt.Sprintf("prompt template key %q has no value", key),
				Err:     ErrMissingTemplateKey,
			}
		}
		sb.WriteString(extractText(value))
		rest = tail[clo+2:]
	}
	return sb.String(), nil
}

// resolveAlias разрешает значение алиаса: результат шага-источника,
// суженный по пути алиаса.
func (r *resolver) resolveAlias(name string, target aliasTarget) (any, error) {
	out, ok := r.state.output(target.step)
	if !ok {
		return nil, &ResolveError{
			Step:    target.step,
			Ref:     name,
			Message: fmt.Sprintf("cannot resolve alias %q: step %q has no recorded output", name, target.step),
			Err:     ErrNoStepOutput,
		}
	}
	if target.key == "" {
		return out, nil
	}
	return r.traverse(out, splitReference(target.key), target.step, name)
}

// resolvePath разрешает ссылку вида step.path[0].key: первый сегмент —
// имя шага, остальные — путь внутри его результата.
func (r *resolver) resolvePath(ref string) (any, error) {
	parts := splitReference(ref)
	if len(parts) == 0 {
		return nil, &ResolveError{
			Ref:     ref,
			Message: fmt.Sprintf("reference %q is empty", ref),
			Err:     ErrMalformedReference,
		}
	}
	stepName := parts[0]
	out, ok := r.state.output(stepName)
	if !ok {
		return nil, &ResolveError{
			Step:    stepName,
			Ref:     ref,
			Message: fmt.Sprintf("cannot resolve %q: step %q has no recorded output", ref, stepName),
			Err:     ErrNoStepOutput,
		}
	}
	return r.traverse(out, parts[1:], stepName, ref)
}

// traverse спускается по сегментам пути внутрь значения.
func (r *resolver) traverse(cur any, parts []string, stepName, ref string) (any, error) {
	for _, part := range parts {
		next, err := descend(cur, part, stepName, ref)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// descend делает один шаг по пути: ключ карты, индекс массива или
// поле структуры.
func descend(cur any, part, stepName, ref string) (any, error) {
	switch v := cur.(type) {
	case map[string]any:
		next, ok := v[part]
		if !ok {
			return nil, keyNotFound(part, stepName, ref)
		}
		return next, nil
	case []any:
		return indexSlice(len(v), part, stepName, ref, func(i int) any { return v[i] })
	case *Response:
		if v == nil {
			return nil, notTraversable(cur, part, stepName, ref)
		}
		return descendStruct(reflect.ValueOf(*v), part, stepName, ref)
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, notTraversable(cur, part, stepName, ref)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, notTraversable(cur, part, stepName, ref)
		}
		mv := rv.MapIndex(reflect.ValueOf(part))
		if !mv.IsValid() {
			return nil, keyNotFound(part, stepName, ref)
		}
		return mv.Interface(), nil
	case reflect.Slice, reflect.Array:
		return indexSlice(rv.Len(), part, stepName, ref, func(i int) any { return rv.Index(i).Interface() })
	case reflect.Struct:
		return descendStruct(rv, part, stepName, ref)
	default:
		return nil, notTraversable(cur, part, stepName, ref)
	}
}

// descendStruct ищет поле структуры по json-тегу, затем по имени поля.
func descendStruct(rv reflect.Value, part, stepName, ref string) (any, error) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if tag == part || (tag == "" && field.Name == part) || field.Name == part {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, keyNotFound(part, stepName, ref)
}

func indexSlice(length int, part, stepName, ref string, at func(int) any) (any, error) {
	idx, err := strconv.Atoi(part)
	if err != nil {
		return nil, &ResolveError{
			Step:    stepName,
			Ref:     ref,
			Part:    part,
			Message: fmt.Sprintf("cannot resolve %q: invalid index %q for step %q", ref, part, stepName),
			Err:     ErrBadIndex,
		}
	}
	if idx < 0 || idx >= length {
		return nil, &ResolveError{
			Step:    stepName,
			Ref:     ref,
			Part:    part,
			Message: fmt.Sprintf("cannot resolve %q: index %d out of range for step %q", ref, idx, stepName),
			Err:     ErrIndexOutOfRange,
		}
	}
	return at(idx), nil
}

func keyNotFound(part, stepName, ref string) *ResolveError {
	return &ResolveError{
		Step:    stepName,
		Ref:     ref,
		Part:    part,
		Message: fmt.Sprintf("cannot resolve %q: key %q not found in output of step %q", ref, part, stepName),
		Err:     ErrKeyNotFound,
	}
}

func notTraversable(cur any, part, stepName, ref string) *ResolveError {
	return &ResolveError{
		Step:    stepName,
		Ref:     ref,
		Part:    part,
		Message: fmt.Sprintf("cannot resolve %q: part %q: value of type %T is not traversable", ref, part, cur),
		Err:     ErrUnsupportedType,
	}
}

// singleRef проверяет, что строка целиком является одной ссылкой
// {{...}}, и возвращает её содержимое без скобок и пробелов.
func singleRef(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") || len(t) < 4 {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// isWord сообщает, состоит ли строка только из букв, цифр
// и подчёркиваний.
func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// splitReference разбивает путь ссылки по точкам и скобкам индексации:
// "step.items[0].name" → ["step", "items", "0", "name"].
func splitReference(ref string) []string {
	return strings.FieldsFunc(ref, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
}

// extractText приводит значение к тексту для подстановки в промпт.
// Карты с ключом output или content сворачиваются к этому значению,
// составные значения сериализуются в JSON, скаляры форматируются как есть.
func extractText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *Response:
		if t == nil {
			return ""
		}
		return extractText(t.Output)
	case map[string]any:
		if out, ok := t["output"]; ok {
			return extractText(out)
		}
		if content, ok := t["content"]; ok {
			return extractText(content)
		}
		return jsonText(t)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		if f := rv.FieldByName("Output"); f.IsValid() && f.CanInterface() {
			return extractText(f.Interface())
		}
		if f := rv.FieldByName("Content"); f.IsValid() && f.CanInterface() {
			return extractText(f.Interface())
		}
		return jsonText(v)
	case reflect.Map, reflect.Slice, reflect.Array:
		return jsonText(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
