// Package cli реализует инструмент командной строки taskflow.
//
// # Обзор
//
// CLI совмещает две роли: локальную работу с файлами определений flow
// (validate, run) и клиента для taskflow API (call, status, schedule).
// Локальные команды используют пакеты flowdef и steps напрямую,
// удалённые — HTTP и форматы ответов API.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для taskflow API. Инкапсулирует запросы, разбор
// конвертов ответов (SuccessResponse, DataResponse, ErrorResponse)
// и преобразование ошибок API в error вида "CODE: message".
//
//	client := cli.NewClient("http://localhost:8000", apiKey, timeout)
//	schedules, err := client.ListSchedules()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: taskflow schedule list --json | jq .
//
// ## Commands
//
// Команды:
//   - validate FILE: локальная проверка определения flow
//   - run FILE: локальный запуск со встроенными runnable
//   - call URL: вызов flow-эндпоинта на сервере
//   - status: состояние сервера (/healthz)
//   - schedule: list, create, delete
//
// Каждая команда создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
