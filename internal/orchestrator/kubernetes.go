package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// managedByLabel marks every batch job and pod Falconeri submits, so
// ListPods/ListBatchJobs can scope their cluster-wide list calls to
// Falconeri's own workload instead of every pod in the cluster.
const managedByLabel = "app.kubernetes.io/managed-by=falconeri"

// KubernetesOrchestrator implements Orchestrator against a real cluster
// via k8s.io/client-go's typed BatchV1/CoreV1 clients.
type KubernetesOrchestrator struct {
	clientset kubernetes.Interface
	log       *slog.Logger
}

// NewKubernetesOrchestrator builds an Orchestrator from the ambient
// kubeconfig (in-cluster config when running inside a pod, or
// KUBECONFIG/~/.kube/config otherwise).
func NewKubernetesOrchestrator(kubeconfigPath string, log *slog.Logger) (*KubernetesOrchestrator, error) {
	cfg, err := loadRESTConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}

	return &KubernetesOrchestrator{clientset: clientset, log: log}, nil
}

func loadRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}

	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// ListPods implements Orchestrator.
func (o *KubernetesOrchestrator) ListPods(ctx context.Context) ([]PodInfo, error) {
	list, err := o.clientset.CoreV1().Pods(corev1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: managedByLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	pods := make([]PodInfo, 0, len(list.Items))

	for _, pod := range list.Items {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}

		pods = append(pods, PodInfo{
			Name:      pod.Name,
			Namespace: pod.Namespace,
			Phase:     string(pod.Status.Phase),
		})
	}

	return pods, nil
}

// ListBatchJobs implements Orchestrator.
func (o *KubernetesOrchestrator) ListBatchJobs(ctx context.Context) ([]BatchJobInfo, error) {
	list, err := o.clientset.BatchV1().Jobs(corev1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: managedByLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}

	jobs := make([]BatchJobInfo, 0, len(list.Items))

	for _, job := range list.Items {
		jobs = append(jobs, BatchJobInfo{Name: job.Name, Namespace: job.Namespace})
	}

	return jobs, nil
}

// SubmitBatchJob implements Orchestrator.
func (o *KubernetesOrchestrator) SubmitBatchJob(ctx context.Context, spec BatchJobSpec) error {
	parallelism := int32(spec.ParallelismTarget) //nolint:gosec // bounded by admission-time validation

	envVars := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	envVars = append(envVars, secretEnvVars(spec.Secrets)...)

	volumes, mounts := secretVolumes(spec.Secrets)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "falconeri",
				"falconeri.io/job-name":        spec.Name,
			},
		},
		Spec: batchv1.JobSpec{
			Parallelism:             &parallelism,
			TTLSecondsAfterFinished: spec.TTLSecondsAfterFinished,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app.kubernetes.io/managed-by": "falconeri",
						"falconeri.io/job-name":        spec.Name,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy:      corev1.RestartPolicyNever,
					NodeSelector:       spec.NodeSelector,
					ServiceAccountName: spec.ServiceAccount,
					Volumes:            volumes,
					Containers: []corev1.Container{
						{
							Name:         "worker",
							Image:        spec.Image,
							Command:      spec.Command,
							Args:         spec.Args,
							Env:          envVars,
							VolumeMounts: mounts,
							Resources:    resourceRequirements(spec.ResourceRequests),
						},
					},
				},
			},
		},
	}

	_, err := o.clientset.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("submit batch job %s/%s: %w", spec.Namespace, spec.Name, err)
	}

	o.log.InfoContext(ctx, "submitted batch job", "namespace", spec.Namespace, "name", spec.Name)

	return nil
}

// resourceRequirements renders a pipeline's resource_requests into the
// worker container's requests. GPU, when set, is requested under the
// nvidia.com/gpu extended resource, the de facto standard for GPU scheduling.
func resourceRequirements(rr ResourceRequests) corev1.ResourceRequirements {
	requests := corev1.ResourceList{}

	if rr.Memory != "" {
		requests[corev1.ResourceMemory] = resource.MustParse(rr.Memory)
	}

	if rr.CPU != "" {
		requests[corev1.ResourceCPU] = resource.MustParse(rr.CPU)
	}

	if rr.GPU != nil {
		requests["nvidia.com/gpu"] = *resource.NewQuantity(int64(*rr.GPU), resource.DecimalSI)
	}

	if len(requests) == 0 {
		return corev1.ResourceRequirements{}
	}

	return corev1.ResourceRequirements{Requests: requests}
}

// secretEnvVars renders every Env-kind secret into a SecretKeyRef env var.
func secretEnvVars(secrets []Secret) []corev1.EnvVar {
	var vars []corev1.EnvVar

	for _, s := range secrets {
		if s.Env == nil {
			continue
		}

		vars = append(vars, corev1.EnvVar{
			Name: s.Env.EnvVar,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: s.Env.Name},
					Key:                  s.Env.Key,
					Optional:             &s.Env.Optional,
				},
			},
		})
	}

	return vars
}

// secretVolumes renders every Mount-kind secret into a Secret volume and its
// matching VolumeMount on the worker container.
func secretVolumes(secrets []Secret) ([]corev1.Volume, []corev1.VolumeMount) {
	var volumes []corev1.Volume

	var mounts []corev1.VolumeMount

	for _, s := range secrets {
		if s.Mount == nil {
			continue
		}

		volumes = append(volumes, corev1.Volume{
			Name: s.Mount.Name,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{SecretName: s.Mount.Name},
			},
		})

		mounts = append(mounts, corev1.VolumeMount{
			Name:      s.Mount.Name,
			MountPath: s.Mount.MountPath,
			ReadOnly:  true,
		})
	}

	return volumes, mounts
}

// DeleteBatchJob implements Orchestrator.
func (o *KubernetesOrchestrator) DeleteBatchJob(ctx context.Context, namespace, name string) error {
	propagation := metav1.DeletePropagationForeground

	err := o.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete batch job %s/%s: %w", namespace, name, err)
	}

	return nil
}
