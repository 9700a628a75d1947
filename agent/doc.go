// Пакет agent реализует LLM-агента поверх cloudwego/eino.
//
// Агент регистрируется во flow как runnable: вход шага становится
// запросом модели, результат — выходом шага вместе с расходом модели
// и записями вызовов инструментов. Модель задаётся идентификатором
// "provider/model" (openai, claude, ollama) либо готовым
// model.ToolCallingChatModel.
//
// Агент с инструментами работает через react-агента eino; без них
// модель вызывается напрямую. Буфер memory.Buffer, переданный в
// конфигурации, сохраняет диалог между запусками. Пользовательская
// функция OnStart замещает модельный конвейер целиком — удобно для
// тестов и ручной оркестрации. Через AsTool агент экспортируется как
// инструмент для вложенных агентов.
package agent
