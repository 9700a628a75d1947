package memory

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidCapacity возвращается при попытке создать буфер
// с неположительным максимумом сообщений.
var ErrInvalidCapacity = errors.New("memory capacity must be positive")

// Buffer — скользящее окно истории диалога.
// Хранит не более max последних сообщений: при переполнении
// самые старые вытесняются. Потокобезопасен.
type Buffer struct {
	mu       sync.RWMutex
	max      int
	messages []Message
}

// NewBuffer создаёт буфер истории на max сообщений.
func NewBuffer(max int) (*Buffer, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, max)
	}
	return &Buffer{max: max}, nil
}

// AddUser добавляет сообщение пользователя.
func (b *Buffer) AddUser(content string) {
	b.add(UserMessage(content))
}

// AddAssistant добавляет ответ модели.
func (b *Buffer) AddAssistant(content string) {
	b.add(AssistantMessage(content))
}

// Add добавляет произвольное сообщение.
func (b *Buffer) Add(msg Message) {
	b.add(msg)
}

func (b *Buffer) add(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.max; over > 0 {
		b.messages = append(b.messages[:0], b.messages[over:]...)
	}
}

// Messages возвращает копию текущей истории от старых к новым.
func (b *Buffer) Messages() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len возвращает число сообщений в буфере.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Cap возвращает максимальную ёмкость буфера.
func (b *Buffer) Cap() int {
	return b.max
}

// Clear очищает историю.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}
