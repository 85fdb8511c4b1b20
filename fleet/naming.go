package fleet

import (
	"fmt"
	"strings"

	"github.com/spring-autohost/cluster-manager/config"
)

// Name template placeholders:
//
//	%N  instance number          %0N zero-padded to two digits
//	%C  cluster-local number     %0C zero-padded to two digits
//	%P  cluster preset id        %M  manager name
//	%O  owner name
//
// A template without a numbering placeholder gets a default suffix so two
// instances of the same cluster can never expand to the same name.
const defaultNameSuffix = "[%0C]"

func hasNumberPlaceholder(template string) bool {
	for _, p := range []string{"%0N", "%N", "%0C", "%C"} {
		if strings.Contains(template, p) {
			return true
		}
	}
	return false
}

func expandName(template, clusterID, managerName, owner string, number, clusterNumber int) string {
	if !hasNumberPlaceholder(template) {
		template += defaultNameSuffix
	}
	replacer := strings.NewReplacer(
		"%0N", fmt.Sprintf("%02d", number),
		"%0C", fmt.Sprintf("%02d", clusterNumber),
		"%N", fmt.Sprintf("%d", number),
		"%C", fmt.Sprintf("%d", clusterNumber),
		"%P", clusterID,
		"%M", managerName,
		"%O", owner,
	)
	return replacer.Replace(template)
}

func validName(name string) bool {
	return config.NameFilter.MatchString(name)
}
