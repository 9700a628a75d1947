// Package api предоставляет HTTP-сервер запусков flow.
//
// Каждый зарегистрированный flow получает POST-эндпоинт, принимающий
// {"input": ...} и отвечающий итогом запуска: сводкой шагов, итоговым
// выходом и длительностью. Ошибки кодируются полем code (INVALID_INPUT,
// AUTH_FAILED, FLOW_RUNTIME_ERROR, TIMEOUT и т.д.), каждый ответ несёт
// trace_id запроса.
//
// Служебные маршруты: GET /healthz — состояние сервера, GET /metrics —
// метрики Prometheus (счётчики запусков по flow и статусу, гистограмма
// длительности, число выполняющихся запусков). При подключённом
// планировщике сервер также отдаёт CRUD расписаний под
// /api/v1/schedules.
//
//	server := api.NewServer(api.Config{Addr: ":8000", APIKey: key, Logger: logger})
//	server.RegisterFlow("/run/report", "report", reportFlow, 0)
//	http.ListenAndServe(server.Addr(), server.Handler())
package api
