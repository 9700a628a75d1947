// Пакет memory реализует историю диалога для агентов.
//
// Buffer хранит скользящее окно последних сообщений: при достижении
// максимума старые сообщения вытесняются новыми. История передаётся
// агенту вместе с запросом и позволяет вести многошаговый диалог
// в рамках flow.
package memory
