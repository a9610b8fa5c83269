package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	tt "github.com/gnolang/coerce/internal/types"
)

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a SourceCode.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return &SourceCode{Lines: strings.Split(string(content), "\n")}, nil
}

func groupByFile(issues []tt.Issue) (map[string][]tt.Issue, []string) {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)
	return issuesByFile, sortedFiles
}

// Print writes the issues file by file with their source snippets. Issues
// of files that cannot be read are printed without a snippet.
func Print(w io.Writer, issues []tt.Issue) error {
	issuesByFile, sortedFiles := groupByFile(issues)
	for _, filename := range sortedFiles {
		sourceCode, err := ReadSourceCode(filename)
		if err != nil {
			sourceCode = &SourceCode{}
		}
		if _, err := fmt.Fprint(w, GenerateFormattedIssue(issuesByFile[filename], sourceCode)); err != nil {
			return err
		}
	}
	return nil
}

// PrintJSON writes the issues as a JSON object keyed by file name.
func PrintJSON(w io.Writer, issues []tt.Issue) error {
	issuesByFile, _ := groupByFile(issues)
	d, err := json.Marshal(issuesByFile)
	if err != nil {
		return fmt.Errorf("error marshalling issues to JSON: %w", err)
	}
	_, err = w.Write(append(d, '\n'))
	return err
}
