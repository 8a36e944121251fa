package datapool

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// Pool представляет именованный набор символов для бэктестов
type Pool struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// Store хранит пулы символов в yaml-файле рядом с конфигурацией.
// Пулы курируются пользователем, порядок символов сохраняется.
type Store struct {
	path  string
	pools []*Pool
}

type poolsFile struct {
	Pools []*Pool `yaml:"pools"`
}

// Load читает пулы из файла. Отсутствующий файл — не ошибка:
// возвращается пустое хранилище, файл появится при первом Save.
func Load(path string) (*Store, error) {
	store := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("ошибка чтения файла пулов: %w", err)
	}

	var file poolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла пулов: %w", err)
	}
	for _, pool := range file.Pools {
		if pool.Name == "" || len(pool.Symbols) == 0 {
			continue
		}
		store.pools = append(store.pools, pool)
	}
	return store, nil
}

// Save записывает пулы обратно в файл
func (s *Store) Save() error {
	data, err := yaml.Marshal(poolsFile{Pools: s.pools})
	if err != nil {
		return fmt.Errorf("ошибка сериализации пулов: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла пулов: %w", err)
	}
	return nil
}

// Names возвращает имена пулов в алфавитном порядке
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.pools))
	for _, pool := range s.pools {
		names = append(names, pool.Name)
	}
	sort.Strings(names)
	return names
}

// Get возвращает пул по имени
func (s *Store) Get(name string) (*Pool, bool) {
	for _, pool := range s.pools {
		if pool.Name == name {
			return pool, true
		}
	}
	return nil, false
}

// Add добавляет символ в пул, создавая пул при необходимости.
// Повторное добавление символа — no-op.
func (s *Store) Add(name, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name == "" || symbol == "" {
		return
	}

	pool, ok := s.Get(name)
	if !ok {
		pool = &Pool{Name: name}
		s.pools = append(s.pools, pool)
	}
	for _, existing := range pool.Symbols {
		if existing == symbol {
			return
		}
	}
	pool.Symbols = append(pool.Symbols, symbol)
}

// Remove убирает символ из пула. Опустевший пул удаляется.
func (s *Store) Remove(name, symbol string) {
	pool, ok := s.Get(name)
	if !ok {
		return
	}
	for i, existing := range pool.Symbols {
		if existing == symbol {
			pool.Symbols = append(pool.Symbols[:i], pool.Symbols[i+1:]...)
			break
		}
	}
	if len(pool.Symbols) == 0 {
		for i, p := range s.pools {
			if p == pool {
				s.pools = append(s.pools[:i], s.pools[i+1:]...)
				break
			}
		}
	}
}

// Next возвращает имя пула, следующего за указанным по кругу.
// Для неизвестного имени возвращается первый пул.
func (s *Store) Next(name string) string {
	names := s.Names()
	if len(names) == 0 {
		return ""
	}
	for i, n := range names {
		if n == name {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

// Len возвращает количество пулов
func (s *Store) Len() int {
	return len(s.pools)
}
