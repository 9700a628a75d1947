// Пакет steps содержит встроенные runnable для типовых шагов flow:
//
//   - http — запрос к внешнему API с разбором JSON-ответа;
//   - transform — пересборка данных из результатов других шагов;
//   - delay — пауза с поддержкой отмены через context.
//
// RegisterDefaults регистрирует все встроенные runnable во flow под
// их каноническими именами.
package steps
