// Пакет tool реализует инструменты — именованные функции со схемой
// входных аргументов, доступные агентам и шагам flow.
//
// Вызов инструмента проверяет аргументы по схеме, выполняет функцию
// и записывает исход в Tracker, привязанный к контексту через
// WithTracker. Метод Eino экспортирует инструмент для передачи
// chat-модели через eino.
package tool
