/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

//go:embed questions.json
var embeddedQuestions []byte

// Question is one entry in a room's pre-loaded question bank.
type Question struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ScoreLevel is one rung on the money ladder.
type ScoreLevel struct {
	Value int `json:"value"`
}

// scoreLadder returns the fixed eight-rung ladder climbed via consecutive
// correct answers. Immutable for the life of the process.
func scoreLadder() []ScoreLevel {
	return []ScoreLevel{
		{Value: 1000},
		{Value: 2000},
		{Value: 5000},
		{Value: 10000},
		{Value: 20000},
		{Value: 30000},
		{Value: 40000},
		{Value: 50000},
	}
}

// loadQuestions reads the question bank once, at startup. An empty path
// selects the embedded default set.
func loadQuestions(path string) ([]Question, error) {
	data := embeddedQuestions

	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read questions file: %w", err)
		}
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, errors.New("question bank is empty")
	}

	return questions, nil
}
