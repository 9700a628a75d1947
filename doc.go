// Пакет taskflow — оркестратор многошаговых pipeline'ов.
//
// Flow объявляется кодом: регистрируются runnable (агенты, функции,
// инструменты), объявляются шаги с входами и зависимостями, при
// необходимости — алиасы на результаты шагов и параллельные группы.
// Запуск выполняет шаги в порядке, определяемом зависимостями,
// разрешая ссылки {{step.path}} на результаты уже завершённых шагов.
//
// Минимальный пример:
//
//	flow, _ := taskflow.New(taskflow.Config{Name: "pipeline"})
//	flow.Register("fetch", fetchFn)
//	flow.Register("summarize", summarizeFn)
//	flow.Step(taskflow.StepConfig{Runnable: "fetch", Input: map[string]any{"input": "{{input}}"}})
//	flow.Step(taskflow.StepConfig{
//		Runnable: "summarize",
//		Input:    map[string]any{"input": "{{fetch.output}}"},
//	})
//	result, err := flow.Run(ctx, "https://example.com")
//
// Шаги поддерживают условия пропуска, повторы с бюджетом, таймауты
// попыток и хуки жизненного цикла. Итог запуска — FlowResult со
// сводкой всех шагов и выходом последнего объявленного шага.
package taskflow
