// Package gitinfo resolves the branch and commit of a working tree.
package gitinfo

import (
	ggit "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// Resolve opens the repository at dir and returns the HEAD branch name and
// commit hash. Detached HEAD yields an empty branch name.
func Resolve(dir string) (branch, commit string, err error) {
	repo, err := ggit.PlainOpen(dir)
	if err != nil {
		return "", "", errors.Wrap(err, errors.CategoryGit, errors.SeverityError, "failed to open git repository").WithContext("dir", dir)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", "", errors.Wrap(err, errors.CategoryGit, errors.SeverityError, "failed to resolve HEAD").WithContext("dir", dir)
	}

	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	return branch, ref.Hash().String(), nil
}
