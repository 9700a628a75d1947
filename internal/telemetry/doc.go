// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает structured logging через slog: единый формат
// для библиотеки, сервера и CLI, настраиваемый переменными
// окружения LOG_LEVEL и LOG_FORMAT.
//
// Хелперы WithRunID, WithFlow и WithStep добавляют стандартные
// атрибуты к логгеру, чтобы все записи одного запуска можно было
// связать между собой. WithLogger и FromContext передают логгер шага
// через контекст в пользовательский код runnable.
package telemetry
