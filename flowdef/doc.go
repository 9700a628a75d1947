// Package flowdef загружает декларативные определения flow из JSON
// и собирает по ним *taskflow.TaskFlow.
//
// Определение покрывает шаги, зависимости, алиасы, параллельные группы
// и настройки повторов. Runnable в определении — имя в реестре: сам
// реестр передаётся в Build отдельно, поэтому одно определение можно
// собирать против разных наборов runnable. Условия пропуска и хуки
// в JSON не выражаются — их навешивают на собранный flow кодом.
//
// Validate применим отдельно от Build, например для команды проверки
// определения без запуска.
package flowdef
