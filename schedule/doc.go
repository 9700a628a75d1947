// Package schedule запускает именованные flow по расписанию.
//
// Расписание задаётся cron-выражением ("0 9 * * *") либо интервалом
// в секундах и хранится в памяти: перезапуск процесса очищает список.
// Каждое срабатывание разрешает имя flow через FlowSource и выполняет
// flow.Run с зафиксированным входом; исход логируется. Пересекающиеся
// срабатывания одного расписания пропускаются.
//
//	sched, _ := schedule.New(schedule.Config{Flows: flows, Logger: logger})
//	sched.Add(schedule.EntryConfig{
//	    Name:     "nightly-report",
//	    CronExpr: "0 3 * * *",
//	    Flow:     "report",
//	    Input:    "daily",
//	})
//	sched.Start()
//	defer sched.Stop(ctx)
package schedule
