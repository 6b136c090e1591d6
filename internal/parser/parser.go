package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/qaforum/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	authorPrefix   = "By:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
)

// ParseFile reads a file from the given path and extracts all questions.
func ParseFile(path string) ([]domain.Question, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all questions with their
// answers. Ids and dates are left for the store to assign.
func Parse(r io.Reader) ([]domain.Question, error) {
	scanner := bufio.NewScanner(r)
	var questions []domain.Question
	var current domain.Question
	var block []string
	currentState := seeking

	flushBlock := func() {
		content := strings.TrimSpace(strings.Join(block, "\n"))
		block = nil
		switch currentState {
		case readingQuestion:
			current.Content = content
		case readingAnswer:
			current.Answers[len(current.Answers)-1].Content = content
		}
	}

	finishQuestion := func() {
		flushBlock()
		if current.Content != "" {
			answers := current.Answers[:0]
			for _, a := range current.Answers {
				if a.Content != "" {
					answers = append(answers, a)
				}
			}
			current.Answers = answers
			questions = append(questions, current)
		}
		current = domain.Question{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.TrimSpace(line) == separator:
			finishQuestion()

		case strings.HasPrefix(line, questionPrefix):
			if currentState != seeking {
				finishQuestion()
			}
			currentState = readingQuestion
			block = append(block, trimPrefix(line, questionPrefix))

		case strings.HasPrefix(line, answerPrefix):
			if currentState == seeking {
				continue
			}
			flushBlock()
			current.Answers = append(current.Answers, domain.Answer{})
			currentState = readingAnswer
			block = append(block, trimPrefix(line, answerPrefix))

		case strings.HasPrefix(line, authorPrefix):
			author := strings.TrimSpace(trimPrefix(line, authorPrefix))
			switch currentState {
			case readingQuestion:
				current.Author = author
			case readingAnswer:
				current.Answers[len(current.Answers)-1].Author = author
			}

		case currentState != seeking:
			block = append(block, line)
		}
	}

	finishQuestion()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return questions, nil
}

func trimPrefix(line, prefix string) string {
	content := line[len(prefix):]
	return strings.TrimPrefix(content, " ")
}
