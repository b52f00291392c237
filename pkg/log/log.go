/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	LogPrefix     = "[go-mxfe] "
	ErrorPrefix   = "[error] "
	WarningPrefix = "[warn] "
	InfoPrefix    = "[info] "
	DebugPrefix   = "[debug] "
	HelpLevels    = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel LogLevel = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

var levelMapping = map[string]LogLevel{
	"error":   ErrorLevel,
	"warning": WarningLevel,
	"info":    InfoLevel,
	"debug":   DebugLevel,
}

// ErrWrongLevel returned when the level name is not one of HelpLevels
type ErrWrongLevel struct {
	Level string
}

func (e ErrWrongLevel) Error() string {
	return fmt.Sprintf("Wrong log level %q. %s", e.Level, HelpLevels)
}

type Logger struct {
	mu    sync.RWMutex
	level LogLevel
	*log.Logger
}

var logger = &Logger{
	level:  InfoLevel,
	Logger: log.New(os.Stderr, LogPrefix, log.LstdFlags),
}

func SetLevel(strLevel string) error {
	level, ok := levelMapping[strLevel]
	if !ok {
		return ErrWrongLevel{Level: strLevel}
	}
	logger.mu.Lock()
	logger.level = level
	logger.mu.Unlock()
	return nil
}

// Init redirects the output and sets the level.
// Unknown level names fall back to info and the error is returned.
func Init(out io.Writer, strLevel string) error {
	logger.SetOutput(out)
	if err := SetLevel(strLevel); err != nil {
		SetLevel("info")
		return err
	}
	return nil
}

// Enabled reports whether messages of the given level are printed
func Enabled(level LogLevel) bool {
	logger.mu.RLock()
	defer logger.mu.RUnlock()
	return logger.level >= level
}

func Error(format string, v ...interface{}) {
	if Enabled(ErrorLevel) {
		logger.Println(fmt.Sprintf(ErrorPrefix+format, v...))
	}
}

func Warning(format string, v ...interface{}) {
	if Enabled(WarningLevel) {
		logger.Println(fmt.Sprintf(WarningPrefix+format, v...))
	}
}

func Info(format string, v ...interface{}) {
	if Enabled(InfoLevel) {
		logger.Println(fmt.Sprintf(InfoPrefix+format, v...))
	}
}

func Debug(format string, v ...interface{}) {
	if Enabled(DebugLevel) {
		logger.Println(fmt.Sprintf(DebugPrefix+format, v...))
	}
}

// Writer is where log lines go, used for HTTP access logs
func Writer() io.Writer {
	return logger.Writer()
}
